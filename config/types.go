package config

import "time"

type Deployer struct {
	Ledger  Ledger
	Storage Storage
	Upload  Upload
	Registry Registry
}

// Ledger contains configs for the collection registry chain
type Ledger struct {

	// remote connection string
	Remote string

	// collection identifier the deployment targets
	CollectionId string
}

// Storage contains configs for the content storage backend
type Storage struct {

	// storage backend connection string
	Conn string
}

// Upload contains configs for the upload stage
type Upload struct {

	// worker pool width, 0 derives it from available parallelism
	Workers int

	// retry bound per upload operation
	MaxAttempts int

	// base delay for exponential backoff
	BaseDelay time.Duration

	// backoff delay cap
	MaxDelay time.Duration
}

// Registry contains configs for the registration stage
type Registry struct {

	// registry entries per ledger transaction
	BatchCapacity int

	// retry bound per batch submission
	MaxAttempts int

	// base delay for exponential backoff
	BaseDelay time.Duration

	// backoff delay cap
	MaxDelay time.Duration
}
