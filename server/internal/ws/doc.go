// Package ws pushes delivered alerts to dashboards over WebSocket.
//
// Hub is an alerts publisher: every delivered alert is broadcast to all
// connected clients as it happens. A client connecting late first receives
// the most recent alerts as a backlog.
//
// Message format sent to clients:
//
//	{
//	  "event": "backlog" | "alert",
//	  "data":  [ /* alert records, same schema as GET /api/v1/alerts */ ]
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The endpoint is mounted at /ws/alerts by the server.
package ws
