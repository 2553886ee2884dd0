package helper

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knights-analytics/hugot"
)

// PrepareModel downloads a sentence-transformers model if it is not cached
// under ./models and returns the local model path. onnxFilePath selects the
// ONNX file inside the model repository when set.
func PrepareModel(modelName string, onnxFilePath string) (string, error) {
	modelDir := "./models"
	sanitized := strings.ReplaceAll(modelName, "/", "_")
	modelPath := filepath.Join(modelDir, sanitized)

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		if err := os.MkdirAll(modelDir, 0750); err != nil {
			return "", fmt.Errorf("failed to create model directory: %w", err)
		}
		downloadOptions := hugot.NewDownloadOptions()
		if onnxFilePath != "" {
			downloadOptions.OnnxFilePath = onnxFilePath
		}
		downloadedPath, err := hugot.DownloadModel(modelName, modelDir, downloadOptions)
		if err != nil {
			return "", fmt.Errorf("failed to download model: %w", err)
		}
		modelPath = downloadedPath
	}

	return modelPath, nil
}
