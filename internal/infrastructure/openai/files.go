package openai

import (
	"context"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

// GetFileInfo fetches a remote file's metadata
func (s *Service) GetFileInfo(ctx context.Context, fileID string) (openai.File, error) {
	if fileID == "" {
		return openai.File{}, missingArg("file_id")
	}

	file, err := s.client.GetFile(ctx, fileID)
	return file, wrapErr("files.retrieve", err)
}

// DownloadFile fetches a remote file's binary content
func (s *Service) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	if fileID == "" {
		return nil, missingArg("file_id")
	}

	content, err := s.client.GetFileContent(ctx, fileID)
	if err != nil {
		return nil, wrapErr("files.content", err)
	}
	defer content.Close()

	data, err := io.ReadAll(content)
	if err != nil {
		return nil, wrapErr("files.content", fmt.Errorf("read file %s: %w", fileID, err))
	}
	return data, nil
}

// UploadFile uploads content for assistant use
func (s *Service) UploadFile(ctx context.Context, name string, data []byte) (openai.File, error) {
	if name == "" {
		return openai.File{}, missingArg("filename")
	}

	file, err := s.client.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    name,
		Bytes:   data,
		Purpose: openai.PurposeAssistants,
	})
	return file, wrapErr("files.upload", err)
}

// DeleteFile removes a remote file
func (s *Service) DeleteFile(ctx context.Context, fileID string) error {
	if fileID == "" {
		return missingArg("file_id")
	}
	return wrapErr("files.delete", s.client.DeleteFile(ctx, fileID))
}
