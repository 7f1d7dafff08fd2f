// # Endpoints
//
//	GET  /api/v1/health               liveness and version
//	GET  /api/v1/metrics              runtime, hub and script counters
//	GET  /api/v1/status               robot snapshot
//	GET  /api/v1/longmessage          upload status of the selected slot
//	POST /api/v1/longmessage/{header} raw long-message write, body is the payload
//	GET  /api/v1/ws                   event stream and control input
//
// # WebSocket
//
// Clients subscribe to channels (robot.status, controller.status,
// battery, longmessage.updated) and receive event messages. A client may
// also send control messages, which are fed to the remote controller
// exactly like frames received over the link:
//
//	{"type":"control","payload":{"analog":[127,127],"buttons":[false,true]}}
//
// # Graceful Degradation
//
// The server runs without the message broker; the link entry in the
// metrics is then absent.
package api
