package casfs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casfs_uploaded_bytes_total",
		Help: "Bytes uploaded to the blob store by hashed writers",
	})

	downloadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casfs_downloaded_bytes_total",
		Help: "Bytes fetched from the blob store by hashed readers",
	})

	verificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casfs_verification_failures_total",
		Help: "Digest mismatches detected when verifying fetched objects",
	})
)
