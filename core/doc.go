// Package core holds the JSON response envelope and HTTP error values shared
// by the admin API handlers.
//
// Handlers build a Response and render it:
//
//	func (a *api) size(w http.ResponseWriter, r *http.Request) {
//		n, err := q.Client.Size(r.Context())
//		if err != nil {
//			_ = core.JSONError(err).Render(w, r)
//			return
//		}
//		_ = core.JSON("queue_size", n, nil).Render(w, r)
//	}
//
// Errors wrapped in an HTTPError (core.ErrNotFound.Wrap(err)) keep their
// status code; any other error renders as 500 without leaking its message.
package core
