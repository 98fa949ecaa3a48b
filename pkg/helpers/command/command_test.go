// Zaparoo Flash Disk
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Flash Disk.
//
// Zaparoo Flash Disk is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Flash Disk is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Flash Disk.  If not, see <http://www.gnu.org/licenses/>.

package command

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealExecutor_Run(t *testing.T) {
	t.Parallel()

	executor := &RealExecutor{}

	t.Run("executes_successful_command", func(t *testing.T) {
		t.Parallel()

		err := executor.Run(context.Background(), "true")

		require.NoError(t, err)
		assert.Equal(t, 0, ExitCode(err))
	})

	t.Run("reports_exit_status", func(t *testing.T) {
		t.Parallel()

		err := executor.Run(context.Background(), "sh", "-c", "exit 126")

		require.Error(t, err)
		assert.Equal(t, 126, ExitCode(err))
	})

	t.Run("wrapped_exit_status", func(t *testing.T) {
		t.Parallel()

		err := executor.Run(context.Background(), "false")
		wrapped := fmt.Errorf("unmount: %w", err)

		assert.Equal(t, 1, ExitCode(wrapped))
	})

	t.Run("nonexistent_command_has_no_status", func(t *testing.T) {
		t.Parallel()

		err := executor.Run(context.Background(), "nonexistent_command_that_should_not_exist_12345")

		require.Error(t, err)
		assert.Equal(t, -1, ExitCode(err))
	})
}

func TestExitCode_PlainError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, -1, ExitCode(errors.New("boom")))
}

func TestExecutor_Interface(t *testing.T) {
	t.Parallel()

	var _ Executor = (*RealExecutor)(nil)
}
