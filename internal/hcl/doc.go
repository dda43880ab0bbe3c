// Package hcl loads pipeline definitions written in HCL.
//
// A definition is either a single file or a directory of .hcl files. Exactly
// one workflow block must exist across all files; job blocks may appear inside
// it or at the top level of any file, which lets large pipelines split their
// jobs over several files.
//
//	workflow "ci" {
//	  on "push" { branches = ["main"] }
//	  env = { GOFLAGS = "-mod=readonly" }
//
//	  job "test" {
//	    needs     = ["lint"]
//	    runs_on   = "${matrix.os}"
//	    condition = event == "push" || matrix.os == "linux"
//
//	    matrix {
//	      axis "os" { values = ["linux", "macos"] }
//	      include {
//	        os           = "linux"
//	        experimental = "true"
//	      }
//	    }
//	    cache {
//	      paths = ["~/.cache/go-build"]
//	      key   = "go-${matrix.os}-${hash_files("go.sum")}"
//	    }
//	    step "unit" { run = "go test ./..." }
//	  }
//
//	  deploy "release" {
//	    condition = ref == "refs/heads/main"
//	    run       = "./release.sh"
//	    secrets   = ["REGISTRY_TOKEN"]
//	  }
//	}
package hcl
