package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/noah-isme/herbtrace-api/internal/dto"
	"github.com/noah-isme/herbtrace-api/internal/models"
	appErrors "github.com/noah-isme/herbtrace-api/pkg/errors"
	"github.com/noah-isme/herbtrace-api/pkg/storage"
)

type photoHarvestReader interface {
	FindByID(ctx context.Context, id string) (*models.Harvest, error)
}

type photoStorage interface {
	Stat(ref string) (storage.Object, error)
	Open(ref string) (io.ReadCloser, error)
}

type urlSigner interface {
	Generate(subject, ref string) (string, time.Time, error)
	Parse(token string) (storage.Grant, error)
}

// PhotoService resolves harvest photo references to byte streams behind signed URLs.
type PhotoService struct {
	harvests photoHarvestReader
	storage  photoStorage
	signer   urlSigner
	basePath string
}

// NewPhotoService constructs the service. basePath prefixes generated URLs.
func NewPhotoService(harvests photoHarvestReader, store photoStorage, signer urlSigner, basePath string) *PhotoService {
	return &PhotoService{harvests: harvests, storage: store, signer: signer, basePath: strings.TrimSuffix(basePath, "/")}
}

// Link issues a time-limited URL for the photo attached to a harvest.
func (s *PhotoService) Link(ctx context.Context, harvestID string) (*dto.PhotoLink, error) {
	harvest, err := s.harvests.FindByID(ctx, harvestID)
	if err != nil {
		return nil, notFoundOr(err, "harvest not found", "failed to load harvest")
	}
	if harvest.PhotoRef == nil || strings.TrimSpace(*harvest.PhotoRef) == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "harvest has no photo")
	}
	ref := *harvest.PhotoRef
	if _, err := s.storage.Stat(ref); err != nil {
		return nil, storageError(err)
	}
	token, expiresAt, err := s.signer.Generate(harvest.ID, ref)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign photo url")
	}
	return &dto.PhotoLink{HarvestID: harvest.ID, URL: s.basePath + "/photos/" + token, ExpiresAt: expiresAt}, nil
}

// Open verifies a signed token and opens the photo it names. Callers close the reader.
func (s *PhotoService) Open(token string) (io.ReadCloser, storage.Object, error) {
	grant, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, storage.Object{}, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "photo link expired")
		}
		return nil, storage.Object{}, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid photo link")
	}
	obj, err := s.storage.Stat(grant.Ref)
	if err != nil {
		return nil, storage.Object{}, storageError(err)
	}
	reader, err := s.storage.Open(grant.Ref)
	if err != nil {
		return nil, storage.Object{}, storageError(err)
	}
	return reader, obj, nil
}

func storageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotExist):
		return appErrors.Clone(appErrors.ErrNotFound, "photo not found")
	case errors.Is(err, storage.ErrInvalidPath):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid photo reference")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read photo")
}
