// Package operator exposes the human confirmation step over HTTP.
//
// POST /api/identify runs one identification pass and stores the pending
// session in a registry. The operator then reads the session (both signals,
// extracted details and the recommendation), fetches the captured image, and
// closes it with confirm, correct, retry or cancel. The same server starts
// background catalog builds and streams their progress over a websocket at
// /api/catalog/build/events.
package operator
