package models

// APIServer serves the staking application over HTTP.
type APIServer interface {
	Start()
	Shutdown() error
}
