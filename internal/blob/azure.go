package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// Azure stores blobs in Azure Blob Storage; the bucket is the container.
type Azure struct {
	client        *azblob.Client
	publicBaseURL string
}

func NewAzure(connectionString, publicBaseURL string) (*Azure, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("azure blob client: %w", err)
	}
	if publicBaseURL == "" {
		publicBaseURL = client.URL()
	}
	return &Azure{client: client, publicBaseURL: publicBaseURL}, nil
}

// EnsureContainer creates the container with public blob access unless it
// already exists.
func (a *Azure) EnsureContainer(ctx context.Context, container string) error {
	_, err := a.client.CreateContainer(ctx, container, &azblob.CreateContainerOptions{
		Access: to.Ptr(azblob.PublicAccessTypeBlob),
	})
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return err
	}
	return nil
}

func (a *Azure) Upload(ctx context.Context, bucket, objectPath string, body io.Reader, size int64, contentType string) (Object, error) {
	key, err := cleanKey(bucket, objectPath)
	if err != nil {
		return Object{}, err
	}
	_, err = a.client.UploadStream(ctx, bucket, key, body, &azblob.UploadStreamOptions{
		BlockSize:   int64(1024) * 256,
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)},
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	return Object{Path: key, FullPath: bucket + "/" + key, URL: a.PublicURL(bucket, key)}, nil
}

func (a *Azure) Remove(ctx context.Context, bucket string, paths ...string) error {
	var errs []error
	for _, p := range paths {
		key, err := cleanKey(bucket, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		if _, err := a.client.DeleteBlob(ctx, bucket, key, nil); err != nil {
			var respErr *azcore.ResponseError
			if errors.As(err, &respErr) && respErr.ErrorCode == string(bloberror.BlobNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (a *Azure) PublicURL(bucket, objectPath string) string {
	return joinURL(a.publicBaseURL, bucket, objectPath)
}
