package healthtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/capatazlib/go-medic/health"
)

// EventP represents a predicate function that allows us to assert properties of
// a RemediationEvent emitted by the monitor
type EventP interface {
	// Call will execute the logic of this event predicate
	Call(health.RemediationEvent) bool

	// Returns an string representation of this event predicate (for debugging
	// purposes)
	String() string
}

// ServiceP asserts the service of the event
type ServiceP struct {
	name string
}

// Call checks the service name of the event
func (p ServiceP) Call(ev health.RemediationEvent) bool {
	return ev.Service == p.name
}

func (p ServiceP) String() string {
	return fmt.Sprintf("service == %s", p.name)
}

// ActionP asserts the action of the event
type ActionP struct {
	action health.Action
}

// Call checks the action of the event
func (p ActionP) Call(ev health.RemediationEvent) bool {
	return ev.Action == p.action
}

func (p ActionP) String() string {
	return fmt.Sprintf("action == %s", p.action)
}

// SuccessP asserts the outcome of the event
type SuccessP struct {
	success bool
}

// Call checks the outcome of the event
func (p SuccessP) Call(ev health.RemediationEvent) bool {
	return ev.Success == p.success
}

func (p SuccessP) String() string {
	return fmt.Sprintf("success == %t", p.success)
}

// AttemptP asserts the attempt number of the event
type AttemptP struct {
	attempt uint32
}

// Call checks the attempt number of the event
func (p AttemptP) Call(ev health.RemediationEvent) bool {
	return ev.Attempt == p.attempt
}

func (p AttemptP) String() string {
	return fmt.Sprintf("attempt == %d", p.attempt)
}

// IssuePrefixP asserts the issue of the event starts with a given text
type IssuePrefixP struct {
	prefix string
}

// Call checks the issue of the event
func (p IssuePrefixP) Call(ev health.RemediationEvent) bool {
	return strings.HasPrefix(ev.Issue, p.prefix)
}

func (p IssuePrefixP) String() string {
	return fmt.Sprintf("issue starts with %q", p.prefix)
}

// AndP is a predicate that builds the conjunction of a group EventP predicates
// (e.g. join EventP predicates with &&)
type AndP struct {
	preds []EventP
}

// Call verifies all the grouped predicates return true
func (p AndP) Call(ev health.RemediationEvent) bool {
	for _, pred := range p.preds {
		if !pred.Call(ev) {
			return false
		}
	}
	return true
}

func (p AndP) String() string {
	acc := make([]string, 0, len(p.preds))
	for _, pred := range p.preds {
		acc = append(acc, pred.String())
	}
	return strings.Join(acc, " && ")
}

// And joins the given predicates
func And(preds ...EventP) EventP {
	return AndP{preds: preds}
}

// IssuePrefix is a predicate to assert the issue text of an event
func IssuePrefix(prefix string) EventP {
	return IssuePrefixP{prefix: prefix}
}

// Remediated is a predicate to assert an event reports a successful action on
// the given service at the given attempt
func Remediated(name string, action health.Action, attempt uint32) EventP {
	return AndP{
		preds: []EventP{
			ServiceP{name: name},
			ActionP{action: action},
			AttemptP{attempt: attempt},
			SuccessP{success: true},
		},
	}
}

// RemediationFailed is a predicate to assert an event reports a failed action
// on the given service at the given attempt
func RemediationFailed(name string, action health.Action, attempt uint32) EventP {
	return AndP{
		preds: []EventP{
			ServiceP{name: name},
			ActionP{action: action},
			AttemptP{attempt: attempt},
			SuccessP{success: false},
		},
	}
}

func renderEvents(evs []health.RemediationEvent) string {
	var builder strings.Builder
	for i, ev := range evs {
		builder.WriteString(fmt.Sprintf("  %3d: %s\n", i, ev.String()))
	}
	return builder.String()
}

// verifyExactMatch checks the input slice of EventP predicate match 1 to 1
// with a given list of remediation events.
func verifyExactMatch(preds []EventP, given []health.RemediationEvent) error {
	if len(preds) != len(given) {
		return fmt.Errorf(
			"Expecting exact match, but length is not the same:\nwant: %d\ngiven: %d\nevents:\n%s",
			len(preds),
			len(given),
			renderEvents(given),
		)
	}
	for i, pred := range preds {
		if !pred.Call(given[i]) {
			return fmt.Errorf(
				"Expecting exact match, but entry %d did not match:\ncriteria: %s\nevent: %s\nevents:\n%s",
				i,
				pred.String(),
				given[i].String(),
				renderEvents(given),
			)
		}
	}
	return nil
}

// AssertExactMatch is an assertion that checks the input slice of EventP
// predicate match 1 to 1 with a given list of remediation events.
func AssertExactMatch(t *testing.T, evs []health.RemediationEvent, preds []EventP) {
	t.Helper()
	if err := verifyExactMatch(preds, evs); err != nil {
		t.Error(err)
	}
}

// verifyPartialMatch matches (in order) a list of EventP predicates to a list
// of events, skipping events in between matches. It returns the predicates
// that did not match.
func verifyPartialMatch(preds []EventP, given []health.RemediationEvent) []EventP {
	for len(preds) > 0 {
		if len(given) == 0 {
			return preds
		}
		if preds[0].Call(given[0]) {
			preds = preds[1:]
		}
		given = given[1:]
	}
	return preds
}

// AssertPartialMatch is an assertion that matches in order a list of EventP
// predicates to a list of remediation events; the events do not need to be a
// one to one match.
func AssertPartialMatch(t *testing.T, evs []health.RemediationEvent, preds []EventP) {
	t.Helper()
	pending := verifyPartialMatch(preds, evs)
	if len(pending) == 0 {
		return
	}
	pendingStrs := make([]string, 0, len(pending))
	for _, pred := range pending {
		pendingStrs = append(pendingStrs, pred.String())
	}
	t.Errorf(
		"Last match(es) didn't work - pending count: %d:\n%s\nInput events:\n%s",
		len(pending),
		strings.Join(pendingStrs, "\n"),
		renderEvents(evs),
	)
}
