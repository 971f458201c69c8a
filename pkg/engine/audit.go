package engine

import "github.com/Ramsey-B/fern/pkg/models"

// AuditEvents lists the workspace's audit trail, newest first
func (e *Engine) AuditEvents(workspace string) []models.AuditEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	return filterWorkspace(e.auditEvents, workspace, func(ev models.AuditEvent) string { return ev.Workspace })
}
