package domain

// RecoveryField names one key of the `:recovery:` banner stream.
type RecoveryField string

const (
	RecoveryFieldLogin          RecoveryField = "login"
	RecoveryFieldDCSID          RecoveryField = "dcsID"
	RecoveryFieldSSHArgs        RecoveryField = "sshargs"
	RecoveryFieldBoolArgs       RecoveryField = "boolArgs"
	RecoveryFieldClientUniqueID RecoveryField = "clientUniqueID"
)

// RecoveryInfo accumulates banner fields while a recovery record is
// being built. A field is considered present once its setter ran, even
// with an empty value (boolArgs is legitimately empty).
type RecoveryInfo struct {
	FramedPID      int
	DCSID          string
	SSHArgs        string
	BoolArgs       string
	ClientUniqueID string

	have map[RecoveryField]bool
}

func NewRecoveryInfo() *RecoveryInfo {
	return &RecoveryInfo{have: make(map[RecoveryField]bool)}
}

// Set records one banner field. Returns false for an unknown key or a
// malformed login PID.
func (r *RecoveryInfo) Set(field RecoveryField, value string) bool {
	switch field {
	case RecoveryFieldLogin:
		pid, ok := ParsePID(value)
		if !ok {
			return false
		}
		r.FramedPID = pid
	case RecoveryFieldDCSID:
		r.DCSID = value
	case RecoveryFieldSSHArgs:
		r.SSHArgs = value
	case RecoveryFieldBoolArgs:
		r.BoolArgs = value
	case RecoveryFieldClientUniqueID:
		r.ClientUniqueID = value
	default:
		return false
	}
	r.have[field] = true
	return true
}

// Complete reports whether every required field arrived before the end
// banner.
func (r *RecoveryInfo) Complete() bool {
	for _, f := range []RecoveryField{
		RecoveryFieldLogin,
		RecoveryFieldDCSID,
		RecoveryFieldSSHArgs,
		RecoveryFieldBoolArgs,
		RecoveryFieldClientUniqueID,
	} {
		if !r.have[f] {
			return false
		}
	}
	return true
}
