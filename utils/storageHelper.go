package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// RetentionClassArchive is the storage class applied to source documents of
// invoiced projects. The files stay retrievable; only the storage tier drops.
const RetentionClassArchive = "ARCHIVE"

var ErrorNotStorageURL = errors.New("url does not match the storage host pattern")

// getGoogleClient initializes a Google Cloud Storage client.
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
	// If you need to provide explicit JSON (e.g. locally), set GCS_CREDENTIALS_JSON.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		client, err := storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// DeleteObjectByURL removes the object a document field points at.
// A missing object means the deletion is already satisfied, not an error.
func DeleteObjectByURL(ctx context.Context, rawURL string) error {
	objectKey := ExtractObjectKeyFromURL(rawURL)
	if objectKey == "" {
		return ErrorNotStorageURL
	}

	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	bucketName := os.Getenv("GCS_BUCKET")
	if bucketName == "" {
		return errors.New("GCS_BUCKET is required")
	}

	err = client.Bucket(bucketName).Object(objectKey).Delete(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil
		}
		return err
	}
	return nil
}

// SetRetentionClassByURL rewrites the object onto the given storage class.
// GCS has no in-place class update, so this is a same-key copy.
func SetRetentionClassByURL(ctx context.Context, rawURL string, class string) error {
	objectKey := ExtractObjectKeyFromURL(rawURL)
	if objectKey == "" {
		return ErrorNotStorageURL
	}
	if class == "" {
		return errors.New("storage class is required")
	}

	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	bucketName := os.Getenv("GCS_BUCKET")
	if bucketName == "" {
		return errors.New("GCS_BUCKET is required")
	}

	obj := client.Bucket(bucketName).Object(objectKey)
	copier := obj.CopierFrom(obj)
	copier.StorageClass = class
	if _, err := copier.Run(ctx); err != nil {
		return fmt.Errorf("set storage class %q on %q: %w", class, objectKey, err)
	}
	return nil
}

