// Package server wires the MCP transport, the authorization flow
// endpoints, and the operational surface (health, metrics) into HTTP
// servers, and carries the shared ServerContext that tool handlers pull
// their dependencies from.
//
// Identity propagation happens here: the agent runtime names the end
// user in the X-User-ID header, HTTPContextFunc copies it into the tool
// handler context, and UserIDFromContext reads it back out. Requests
// without the header share the DefaultUserID credential slot.
package server
