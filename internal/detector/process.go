package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"garden-relay/internal/types"
)

const processName = "process"

// ProcessOptions - параметры локального исполняемого детектора
type ProcessOptions struct {
	// Command - исполняемый файл и его аргументы; пути входного и выходного файла дописываются в конец
	Command  []string
	TempDir  string
	Timeout  time.Duration
	Observer Observer
}

// ProcessDetector запускает внешний процесс на каждый кадр.
// Входной и выходной файлы получают UUID имена и удаляются после вызова при любом исходе.
type ProcessDetector struct {
	command  []string
	tempDir  string
	timeout  time.Duration
	observer Observer
	logger   *zap.Logger
}

// processResult - ответ relay для локального детектора
type processResult struct {
	Detections json.RawMessage `json:"detections,omitempty"`
	Image      string          `json:"image,omitempty"`
}

// NewProcessDetector создает ProcessDetector и проверяет каталог временных файлов
func NewProcessDetector(opts ProcessOptions, logger *zap.Logger) (*ProcessDetector, error) {
	if len(opts.Command) == 0 || opts.Command[0] == "" {
		return nil, &types.ConfigurationError{Field: "detection.process.command", Err: errors.New("required")}
	}

	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0o700); err != nil {
		return nil, &types.ConfigurationError{Field: "detection.process.temp_dir", Err: err}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultDetection
	}

	command := make([]string, len(opts.Command))
	copy(command, opts.Command)

	return &ProcessDetector{
		command:  command,
		tempDir:  tempDir,
		timeout:  timeout,
		observer: opts.Observer,
		logger:   logger,
	}, nil
}

// Name возвращает имя бэкенда
func (d *ProcessDetector) Name() string { return processName }

// Detect пишет кадр во временный файл, запускает процесс и собирает stdout и выходное изображение
func (d *ProcessDetector) Detect(ctx context.Context, frame types.FramePayload) (types.DetectionResult, error) {
	start := time.Now()
	result, err := d.detect(ctx, frame)
	elapsed := time.Since(start)

	if d.observer != nil {
		d.observer.ObserveDetection(processName, err, elapsed)
	}
	if err != nil {
		d.logger.Warn("Process detection failed", zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		d.logger.Debug("Process detection finished",
			zap.Duration("elapsed", elapsed),
			zap.Int("result_bytes", len(result.Body)))
	}
	return result, err
}

func (d *ProcessDetector) detect(ctx context.Context, frame types.FramePayload) (types.DetectionResult, error) {
	if len(frame.Data) == 0 {
		return types.DetectionResult{}, &types.ValidationError{Message: "No image provided"}
	}

	id := uuid.NewString()
	ext := extensionFor(frame.MimeType)
	inputPath := filepath.Join(d.tempDir, id+"-input"+ext)
	outputPath := filepath.Join(d.tempDir, id+"-output"+ext)
	defer d.cleanup(inputPath, outputPath)

	if err := writeExclusive(inputPath, frame.Data); err != nil {
		return types.DetectionResult{}, &types.ForwarderError{Backend: processName, Err: fmt.Errorf("write input file: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	args := append(append([]string{}, d.command[1:]...), inputPath, outputPath)
	cmd := exec.CommandContext(ctx, d.command[0], args...)
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("timed out after %s: %w", d.timeout, ctx.Err())
		}
		return types.DetectionResult{}, &types.ForwarderError{
			Backend: processName,
			Err:     err,
			Detail:  types.Truncate(strings.TrimSpace(stderr.String()), maxDetailLength),
		}
	}

	return d.collect(stdout.Bytes(), outputPath)
}

// collect собирает stdout (JSON) и выходное изображение (data-URI) в один ответ
func (d *ProcessDetector) collect(stdout []byte, outputPath string) (types.DetectionResult, error) {
	var result processResult

	if out := bytes.TrimSpace(stdout); len(out) > 0 {
		if !json.Valid(out) {
			return types.DetectionResult{}, &types.ForwarderError{
				Backend: processName,
				Err:     errors.New("detector output is not valid JSON"),
				Detail:  types.Truncate(string(out), maxDetailLength),
			}
		}
		result.Detections = json.RawMessage(out)
	}

	image, err := os.ReadFile(outputPath)
	switch {
	case err == nil:
		result.Image = "data:" + mimeForPath(outputPath) + ";base64," + base64.StdEncoding.EncodeToString(image)
	case !errors.Is(err, os.ErrNotExist):
		return types.DetectionResult{}, &types.ForwarderError{Backend: processName, Err: fmt.Errorf("read output file: %w", err)}
	}

	if result.Detections == nil && result.Image == "" {
		return types.DetectionResult{}, &types.ForwarderError{Backend: processName, Err: errors.New("detector produced no output")}
	}

	body, err := json.Marshal(result)
	if err != nil {
		return types.DetectionResult{}, &types.ForwarderError{Backend: processName, Err: fmt.Errorf("encode result: %w", err)}
	}
	return types.DetectionResult{ContentType: "application/json; charset=utf-8", Body: body}, nil
}

// cleanup удаляет оба временных файла; ошибки только логируются
func (d *ProcessDetector) cleanup(paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn("Failed to remove temp file", zap.String("path", path), zap.Error(err))
			if d.observer != nil {
				d.observer.ObserveCleanupFailure(processName)
			}
		}
	}
}

func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func mimeForPath(path string) string {
	switch filepath.Ext(path) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	default:
		return "image/jpeg"
	}
}
