// Package mysql keeps chat history for the query responder. The memory
// repository lives only inside the running process and is the default. The
// MySQL repository, with embedded migrations, is an explicit opt-in for
// operators who want history to survive restarts.
package mysql
