package onnx

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Provider is an onnxruntime execution provider.
type Provider string

const (
	// CPUExecutionProvider uses the default CPU kernels.
	CPUExecutionProvider Provider = "cpu"
	// CUDAExecutionProvider uses NVIDIA CUDA for GPU acceleration.
	CUDAExecutionProvider Provider = "cuda"
	// CoreMLExecutionProvider uses Apple CoreML for macOS acceleration.
	CoreMLExecutionProvider Provider = "coreml"
	// OpenVINOExecutionProvider uses Intel OpenVINO.
	OpenVINOExecutionProvider Provider = "openvino"
)

// ParseProvider validates a provider name. An empty name selects the CPU.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return CPUExecutionProvider, nil
	case CPUExecutionProvider, CUDAExecutionProvider, CoreMLExecutionProvider, OpenVINOExecutionProvider:
		return p, nil
	default:
		return "", fmt.Errorf("unknown execution provider %q", s)
	}
}

// LibraryEnv names the environment variable that overrides the onnxruntime
// shared library location.
const LibraryEnv = "ORT_LIB"

// SharedLibPath resolves the onnxruntime shared library: an explicit path
// wins, then $ORT_LIB, then the platform default under ./third_party.
func SharedLibPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(LibraryEnv); env != "" {
		return env
	}
	return defaultLibPath(runtime.GOOS, runtime.GOARCH)
}

func defaultLibPath(goos, goarch string) string {
	switch goos {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.1.23.0.dylib"
	default:
		if goarch == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
}
