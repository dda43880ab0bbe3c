// Package document loads pipeline definitions written as YAML or JSONC.
//
// Both formats share one schema. JSONC (JSON with comments and trailing
// commas) is stripped to plain JSON and then read by the YAML decoder, which
// accepts JSON and preserves mapping order. Order is significant: jobs,
// matrix axes and include keys are all expanded in declaration order.
//
//	name: ci
//	on:
//	  push:
//	    branches: [main]
//	jobs:
//	  test:
//	    needs: lint
//	    runs-on: ${matrix.os}
//	    if: event == "push"
//	    matrix:
//	      os: [linux, macos]
//	      include:
//	        - os: linux
//	          experimental: "true"
//	    steps:
//	      - name: unit
//	        run: go test ./...
package document
