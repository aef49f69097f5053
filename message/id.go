package message

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sony/sonyflake"
)

// Message and audit ids are 64-bit sonyflake values: time-ordered and
// unique across worker instances without coordination.
var (
	flakeOnce sync.Once
	flake     *sonyflake.Sonyflake
)

func nextID() uint64 {
	flakeOnce.Do(func() {
		flake = sonyflake.NewSonyflake(sonyflake.Settings{})
	})
	if flake == nil {
		// No private IP to derive a machine id from; sonyflake refuses
		// to start. Fall back to a random uuid-derived id so unit tests
		// and dev boxes keep working.
		id := uuid.New()
		var v uint64
		for _, b := range id[:8] {
			v = v<<8 | uint64(b)
		}
		return v
	}
	id, err := flake.NextID()
	if err != nil {
		return 0
	}
	return id
}

// Audit provenance stamped on every AuditLog entry. The service name is
// set by the owning binary at startup; the instance id identifies this
// process for the lifetime of the run.
var (
	auditMu       sync.RWMutex
	auditService  = "payflow"
	auditInstance = uuid.NewString()
)

// SetAuditSource overrides the service name recorded on new AuditLog
// entries. Called once at startup by each binary.
func SetAuditSource(service string) {
	auditMu.Lock()
	auditService = service
	auditMu.Unlock()
}

func auditSource() (service, instance string) {
	auditMu.RLock()
	defer auditMu.RUnlock()
	return auditService, auditInstance
}
