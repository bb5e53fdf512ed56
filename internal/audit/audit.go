// Package audit records the outcome of mutating response actions. These are
// live, irreversible actions against real endpoints, so every one gets an
// audit line; the write itself must never fail the calling operation.
package audit

import (
	"log"

	"github.com/google/uuid"
	"github.com/hive-corporation/sochub/internal/adapter/vendorapi"
)

// Action logs one mutating operation and returns its audit id. err is the
// operation's outcome; nil means the vendor acknowledged the action.
func Action(module, operation, target string, err error) string {
	id := uuid.NewString()
	if err != nil {
		vendorapi.RecordResponseAction(module, operation, "error")
		log.Printf("audit action=%s module=%s op=%s target=%s outcome=error err=%v", id, module, operation, target, err)
		return id
	}
	vendorapi.RecordResponseAction(module, operation, "success")
	log.Printf("audit action=%s module=%s op=%s target=%s outcome=success", id, module, operation, target)
	return id
}
