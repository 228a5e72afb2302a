// Package transaction pkg/transaction/serviceops.go - logged systemd
// mutations. Undo inverts start/stop and enable/disable; a restart has no
// meaningful inverse and is only logged.

package transaction

import (
	"fmt"
	"log"
	"time"
)

func (t *Tx) ServiceStart(unit string) error {
	return t.serviceOp(OpServiceStart, unit)
}

func (t *Tx) ServiceStop(unit string) error {
	return t.serviceOp(OpServiceStop, unit)
}

func (t *Tx) ServiceRestart(unit string) error {
	return t.serviceOp(OpServiceRestart, unit)
}

func (t *Tx) ServiceEnable(unit string) error {
	return t.serviceOp(OpServiceEnable, unit)
}

func (t *Tx) ServiceDisable(unit string) error {
	return t.serviceOp(OpServiceDisable, unit)
}

func (t *Tx) serviceOp(opType OpType, unit string) error {
	if t.finished {
		return ErrTxFinished
	}

	if t.mgr.svc == nil {
		return errNoServiceManager
	}

	ctx, cancel := t.serviceCtx()
	defer cancel()

	var err error

	switch opType {
	case OpServiceStart:
		err = t.mgr.svc.Start(ctx, unit)
	case OpServiceStop:
		err = t.mgr.svc.Stop(ctx, unit)
	case OpServiceRestart:
		err = t.mgr.svc.Restart(ctx, unit)
	case OpServiceEnable:
		err = t.mgr.svc.Enable(ctx, unit)
	case OpServiceDisable:
		err = t.mgr.svc.Disable(ctx, unit)
	default:
		err = fmt.Errorf("unknown service op %s", opType)
	}

	if err != nil {
		return fmt.Errorf("%s %s: %w", opType, unit, err)
	}

	t.serviceOps = append(t.serviceOps, ServiceOp{
		Type:      opType,
		Unit:      unit,
		Timestamp: time.Now().UTC(),
	})

	t.logf("%s unit=%s", opType, unit)

	return nil
}

func (t *Tx) undoServiceOp(op *ServiceOp) error {
	if t.mgr.svc == nil {
		return errNoServiceManager
	}

	ctx, cancel := t.serviceCtx()
	defer cancel()

	switch op.Type {
	case OpServiceStart:
		return t.mgr.svc.Stop(ctx, op.Unit)
	case OpServiceStop:
		return t.mgr.svc.Start(ctx, op.Unit)
	case OpServiceRestart:
		log.Printf("Transaction %s: restart of %s cannot be undone", t.ID, op.Unit)
		return nil
	case OpServiceEnable:
		return t.mgr.svc.Disable(ctx, op.Unit)
	case OpServiceDisable:
		return t.mgr.svc.Enable(ctx, op.Unit)
	default:
		return fmt.Errorf("unknown service op %s", op.Type)
	}
}
