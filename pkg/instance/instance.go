package instance

import "os"

// GetID returns the process instance identifier for log correlation.
// Heroku-style dynos set DYNO, container deployments set WORKER_ID.
func GetID() string {
	if id := os.Getenv("DYNO"); id != "" {
		return id
	}
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	return "local"
}
