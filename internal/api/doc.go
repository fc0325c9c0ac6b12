// Package api serves the firewall control API: a small JSON interface over
// the rule store plus health, log, audit and live event endpoints.
//
// Routes:
//
//	GET    /api/rules    list rules in enforced order
//	POST   /api/rules    {ip, action} -> 201 {message, rule}
//	DELETE /api/rules    {id, source?} -> 200 {message}
//	GET    /api/health   backend, chain and uptime
//	GET    /api/logs     recent application log entries
//	GET    /api/audit    recent rule mutations (503 when audit is disabled)
//	GET    /api/events   websocket feed of rule.added / rule.deleted
//	GET    /metrics      Prometheus exposition
package api
