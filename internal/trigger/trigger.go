// Package trigger resolves the RunContext of a run and decides whether a
// workflow's triggers accept it.
package trigger

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/vk/burstci/internal/model"
)

// EventPullRequest is the event kind whose branch filters apply to base_ref.
const EventPullRequest = "pull_request"

// Source holds the explicit inputs of a run. Empty fields fall back to the
// payload file and then the environment. Ref and BaseRef travel together:
// both come from the first source that sets either of them.
type Source struct {
	Event   string
	Ref     string
	BaseRef string
	// PayloadPath names a webhook JSON payload.
	PayloadPath string
}

// envKeys lists the environment fallbacks per field, strongest first.
var envKeys = struct {
	event, ref, baseRef []string
}{
	event:   []string{"BURSTCI_EVENT", "GITHUB_EVENT_NAME"},
	ref:     []string{"BURSTCI_REF", "GITHUB_REF"},
	baseRef: []string{"BURSTCI_BASE_REF", "GITHUB_BASE_REF"},
}

// Resolve builds the RunContext from src, then the payload file, then the
// environment reported by lookup. A nil lookup uses os.LookupEnv.
func Resolve(src Source, lookup func(string) (string, bool)) (model.RunContext, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	rc := model.RunContext{Event: src.Event, Ref: src.Ref, BaseRef: src.BaseRef}

	if src.PayloadPath != "" {
		fromPayload, err := ReadPayload(src.PayloadPath)
		if err != nil {
			return model.RunContext{}, err
		}
		rc = fill(rc, fromPayload)
	}

	rc = fill(rc, model.RunContext{
		Event:   first(lookup, envKeys.event),
		Ref:     first(lookup, envKeys.ref),
		BaseRef: first(lookup, envKeys.baseRef),
	})
	if rc.Event == "" {
		rc.Event = "push"
	}
	return rc, nil
}

// payload is the subset of a webhook body the engine reads.
type payload struct {
	Event       string `json:"event"`
	Ref         string `json:"ref"`
	PullRequest *struct {
		Head struct {
			Ref string `json:"ref"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
}

// ReadPayload extracts a RunContext from a webhook JSON payload. A body with
// a pull_request object is a pull request event unless it names its event.
func ReadPayload(filename string) (model.RunContext, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return model.RunContext{}, fmt.Errorf("reading event payload: %w", err)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return model.RunContext{}, fmt.Errorf("decoding event payload %s: %w", filename, err)
	}

	rc := model.RunContext{Event: p.Event, Ref: p.Ref}
	if p.PullRequest != nil {
		if rc.Event == "" {
			rc.Event = EventPullRequest
		}
		if rc.Ref == "" {
			rc.Ref = p.PullRequest.Head.Ref
		}
		rc.BaseRef = p.PullRequest.Base.Ref
	}
	if rc.Event == "" && rc.Ref != "" {
		rc.Event = "push"
	}
	return rc, nil
}

// Matches reports whether rc satisfies at least one trigger of wf. A workflow
// without triggers runs for every event.
func Matches(wf *model.Workflow, rc model.RunContext) bool {
	if len(wf.Triggers) == 0 {
		return true
	}
	for _, t := range wf.Triggers {
		if t.Event != rc.Event {
			continue
		}
		if len(t.Branches) == 0 {
			return true
		}
		ref := rc.Ref
		if rc.Event == EventPullRequest && rc.BaseRef != "" {
			ref = rc.BaseRef
		}
		branch := Branch(ref)
		for _, pattern := range t.Branches {
			// Patterns were validated at load time.
			if ok, _ := path.Match(pattern, branch); ok {
				return true
			}
		}
	}
	return false
}

// Branch returns the short branch name of ref.
func Branch(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}

func fill(rc, fallback model.RunContext) model.RunContext {
	if rc.Event == "" {
		rc.Event = fallback.Event
	}
	if rc.Ref == "" && rc.BaseRef == "" {
		rc.Ref, rc.BaseRef = fallback.Ref, fallback.BaseRef
	}
	return rc
}

func first(lookup func(string) (string, bool), keys []string) string {
	for _, k := range keys {
		if v, ok := lookup(k); ok && v != "" {
			return v
		}
	}
	return ""
}
