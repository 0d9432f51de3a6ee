package studio

import "fmt"

const (
	// BankSize is the number of program slots per part, slot 0 included.
	BankSize = 1024
	// SessionBankSize is the number of session slots, session 0 included.
	SessionBankSize = 1024
)

// ProgramRef addresses the patch a part plays: either the active session's
// own patch for that part or a bank slot.
type ProgramRef struct {
	bank  bool
	index int
}

// SessionRef refers to the active session's patch.
func SessionRef() ProgramRef { return ProgramRef{} }

// BankRef refers to bank slot index. Slot 0 and out-of-range indices
// collapse to SessionRef.
func BankRef(index int) ProgramRef {
	if index <= 0 || index >= BankSize {
		return ProgramRef{}
	}
	return ProgramRef{bank: true, index: index}
}

// IsSession reports whether r refers to the session patch.
func (r ProgramRef) IsSession() bool { return !r.bank }

// Program returns the program slot number, 0 for the session.
func (r ProgramRef) Program() int { return r.index }

func (r ProgramRef) String() string {
	if !r.bank {
		return "session"
	}
	return fmt.Sprintf("bank(%d)", r.index)
}

// ClampProgram collapses program numbers outside [0, BankSize) to 0.
func ClampProgram(prog int) int {
	if prog < 0 || prog >= BankSize {
		return 0
	}
	return prog
}

// ClampPart collapses parts outside [0, MaxParts) to 0.
func ClampPart(part int) int {
	if part < 0 || part >= MaxParts {
		return 0
	}
	return part
}

// ClampSession collapses session numbers outside [0, SessionBankSize) to 0.
func ClampSession(n int) int {
	if n < 0 || n >= SessionBankSize {
		return 0
	}
	return n
}
