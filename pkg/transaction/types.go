package transaction

import "time"

// OpType identifies a logged operation for rollback replay.
type OpType string

const (
	OpCreateFile  OpType = "create_file"
	OpModifyFile  OpType = "modify_file"
	OpReplaceFile OpType = "replace_file"
	OpDeleteFile  OpType = "delete_file"

	OpServiceStart   OpType = "service_start"
	OpServiceStop    OpType = "service_stop"
	OpServiceRestart OpType = "service_restart"
	OpServiceEnable  OpType = "service_enable"
	OpServiceDisable OpType = "service_disable"
)

// FileOp is one logged file mutation. BackupName is the file's
// pre-mutation copy inside the transaction's backup dir; Existed false
// means the file did not previously exist and undo deletes it.
type FileOp struct {
	Type       OpType    `json:"type"`
	Path       string    `json:"path"`
	BackupName string    `json:"backup_name,omitempty"`
	Existed    bool      `json:"existed"`
	Timestamp  time.Time `json:"timestamp"`
}

// ServiceOp is one logged service mutation.
type ServiceOp struct {
	Type      OpType    `json:"type"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
}

// rollbackHook is a caller-registered undo step; hooks run first during
// rollback, in reverse registration order.
type rollbackHook struct {
	name string
	fn   func() error
}
