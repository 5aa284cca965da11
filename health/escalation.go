package health

// escalation maps the attempt number within an attempt window to the
// remediation action to execute. Later attempts never get a softer action
// than earlier ones.
type escalation struct {
	ladder []Action
}

var defaultEscalation = escalation{
	ladder: []Action{SoftRestart, HardRecreate},
}

func (e escalation) action(attempt uint32) Action {
	if attempt <= 1 {
		return e.ladder[0]
	}
	idx := int(attempt - 1)
	if idx >= len(e.ladder) {
		return e.ladder[len(e.ladder)-1]
	}
	return e.ladder[idx]
}
