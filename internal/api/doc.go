// Package api handles incoming HTTP requests for the video service: task
// submission, merge submission, health and test asset serving. Handlers
// translate HTTP payloads into task and merge requests and never wait for
// the work itself.
package api
