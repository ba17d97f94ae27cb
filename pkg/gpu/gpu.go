// Package gpu tunes NVIDIA GPUs for stable performance by locking them to
// their maximum supported clocks.
//
// Ref: https://developer.nvidia.com/blog/advanced-api-performance-setstablepowerstate/
package gpu

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/awslabs/eksnode/pkg/utils"
)

// ErrNoClockSpeeds is returned when nvidia-smi reports no parsable
// supported clock speeds.
var ErrNoClockSpeeds = errors.New("no supported clock speeds reported")

type clockType string

const (
	clockGraphics clockType = "graphics"
	clockMemory   clockType = "memory"
)

// maxSupportedClock extracts the highest clock speed from
// `nvidia-smi --query-supported-clocks` CSV output. Lines that do not start
// with an integer (headers, units) are skipped.
func maxSupportedClock(output string) (int, error) {
	max := 0
	found := false
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		clock, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		if !found || clock > max {
			max = clock
			found = true
		}
	}

	if !found {
		return 0, ErrNoClockSpeeds
	}
	return max, nil
}

func getMaxClock(ctx context.Context, log *logrus.Logger, clock clockType) (int, error) {
	out, err := utils.CmdExec(ctx, "nvidia-smi", fmt.Sprintf("--query-supported-clocks=%s", clock), "--format=csv")
	if err != nil {
		return 0, fmt.Errorf("query supported %s clocks: %w", clock, err)
	}

	max, err := maxSupportedClock(out)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", clock, err)
	}
	log.WithFields(logrus.Fields{"clock": clock, "speed": max}).Info("NVIDIA GPU max clock speed")

	return max, nil
}

// SetNvidiaMaxClock locks the GPUs to their maximum supported clocks.
func SetNvidiaMaxClock(ctx context.Context, log *logrus.Logger) error {
	log.Info("Setting NVIDIA GPU to max clock")

	// Persistence mode first, it makes the following nvidia-smi calls faster.
	if _, err := utils.CmdExec(ctx, "nvidia-smi", "-pm", "1"); err != nil {
		return fmt.Errorf("enable persistence mode: %w", err)
	}

	graphicsMax, err := getMaxClock(ctx, log, clockGraphics)
	if err != nil {
		return err
	}
	memoryMax, err := getMaxClock(ctx, log, clockMemory)
	if err != nil {
		return err
	}

	// Autoboost is pointless once clocks are pinned to max.
	if _, err := utils.CmdExec(ctx, "nvidia-smi", "--auto-boost-default=0"); err != nil {
		return fmt.Errorf("disable autoboost: %w", err)
	}
	if _, err := utils.CmdExec(ctx, "nvidia-smi", "--applications-clocks", fmt.Sprintf("%d,%d", memoryMax, graphicsMax)); err != nil {
		return fmt.Errorf("set application clocks: %w", err)
	}
	if _, err := utils.CmdExec(ctx, "nvidia-smi", "--lock-gpu-clocks", strconv.Itoa(memoryMax)); err != nil {
		return fmt.Errorf("lock GPU clocks: %w", err)
	}
	if _, err := utils.CmdExec(ctx, "nvidia-smi", "--lock-memory-clocks", strconv.Itoa(memoryMax)); err != nil {
		return fmt.Errorf("lock memory clocks: %w", err)
	}

	return nil
}
