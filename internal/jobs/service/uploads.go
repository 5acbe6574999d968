package service

import (
	"context"
	"fmt"

	"sgjobs_backend/internal/adapters/storage"
	"sgjobs_backend/internal/jobs/transport"
	"sgjobs_backend/platform/apperr"
)

// SetUploads enables installer photo uploads into bucket.
func (s *Service) SetUploads(signer storage.UploadSigner, bucket string) {
	s.uploads = signer
	s.uploadBucket = bucket
}

// CreateUpload returns a presigned URL an installer can PUT one file to. Files
// land under jobs/<id>/ in the upload bucket.
func (s *Service) CreateUpload(ctx context.Context, rawToken string, req transport.UploadRequest) (transport.UploadResponse, error) {
	if s.uploads == nil {
		return transport.UploadResponse{}, apperr.Configuration("uploads are not configured")
	}

	job, err := s.resolveToken(ctx, rawToken)
	if err != nil {
		return transport.UploadResponse{}, err
	}

	presigned, err := s.uploads.GenerateUploadURL(ctx, s.uploadBucket, fmt.Sprintf("jobs/%d", job.ID), req.FileName, req.ContentType, req.SizeBytes)
	if err != nil {
		return transport.UploadResponse{}, err
	}

	s.log.WithContext(ctx).Info("upload url issued", "job_id", job.ID, "file_key", presigned.FileKey)
	return transport.UploadResponse{
		UploadURL: presigned.URL,
		FileKey:   presigned.FileKey,
		ExpiresAt: presigned.ExpiresAt,
	}, nil
}
