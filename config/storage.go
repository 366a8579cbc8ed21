package config

import (
	"context"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

var (
	gcsClient   *storage.Client
	gcsClientMu sync.Mutex
)

// GetGCSClient returns the shared Cloud Storage client.
// Prefers ADC; GCS_CREDENTIALS_JSON overrides it for local runs.
func GetGCSClient(ctx context.Context) (*storage.Client, error) {
	gcsClientMu.Lock()
	defer gcsClientMu.Unlock()
	if gcsClient != nil {
		return gcsClient, nil
	}

	var opts []option.ClientOption
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	gcsClient = client
	return client, nil
}

func CloseGCS() {
	gcsClientMu.Lock()
	defer gcsClientMu.Unlock()
	if gcsClient != nil {
		_ = gcsClient.Close()
		gcsClient = nil
	}
}
