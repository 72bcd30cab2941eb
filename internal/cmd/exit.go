package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	fulerrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/docquery/docquery/internal/ailink/driver"
	"github.com/docquery/docquery/internal/observability"
	"github.com/docquery/docquery/internal/ratelimit"
)

// errConfig marks failures to build the process configuration.
var errConfig = errors.New("invalid configuration")

// ExitCodeFor maps a command error onto a semantic foundry exit code.
func ExitCodeFor(err error) foundry.ExitCode {
	var providerErr *driver.ProviderError
	switch {
	case err == nil:
		return foundry.ExitCode(0)
	case errors.Is(err, errConfig), errors.Is(err, ratelimit.ErrInvalidConfiguration):
		return foundry.ExitConfigInvalid
	case errors.Is(err, fs.ErrNotExist):
		return foundry.ExitFileNotFound
	case errors.As(err, &providerErr):
		return foundry.ExitExternalServiceUnavailable
	default:
		return foundry.ExitFailure
	}
}

// ExitOnError exits with the code ExitCodeFor(err) picks. It logs through the
// process logger once one is initialized and falls back to stderr before that.
func ExitOnError(err error) {
	code := ExitCodeFor(err)
	if observability.CLILogger == nil && observability.ServerLogger == nil {
		ExitWithCodeStderr(code, "Command execution failed", err)
		return
	}
	ExitWithCode(observability.Logger(), code, "Command execution failed", err)
}

// ExitWithCode exits the program with a semantic foundry exit code and logs the error.
//
// Parameters:
//   - logger: The logger to use for error output (can be nil for early failures)
//   - exitCode: The foundry exit code constant (e.g., foundry.ExitConfigInvalid)
//   - msg: Human-readable error message
//   - err: The underlying error (can be nil)
func ExitWithCode(logger observability.FieldLogger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok || logger == nil {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_description", info.Description),
		zap.String("exit_category", info.Category),
	}

	var envelope *fulerrors.ErrorEnvelope
	if errors.As(err, &envelope) {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("error_message", envelope.Message),
			zap.String("correlation_id", envelope.CorrelationID),
		)
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
		if originalErr, ok := envelope.Original.(error); ok && originalErr != nil {
			err = originalErr
		}
	}

	fields = append(fields, zap.Error(err))
	logger.Error(msg, fields...)

	os.Exit(info.Code)
}

// ExitWithCodeStderr is a variant that writes to stderr without a logger.
// Use this for early failures before logger initialization.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		os.Exit(int(exitCode))
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)

	os.Exit(info.Code)
}
