package logging_test

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"orgsync/internal/logging"
)

func init() {
	// Plain text so assertions match.
	color.NoColor = true
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name    string
		log     func(l *logging.Logger)
		wantOut string
		wantErr string
		verbose bool
	}{
		{
			name:    "info",
			log:     func(l *logging.Logger) { l.Info("syncing %s", "svc-a") },
			wantOut: "[INFO] syncing svc-a\n",
		},
		{
			name:    "success",
			log:     func(l *logging.Logger) { l.Success("done") },
			wantOut: "[SUCCESS] done\n",
		},
		{
			name:    "warn",
			log:     func(l *logging.Logger) { l.Warn("could not enable %s", "alerts") },
			wantOut: "[WARN] could not enable alerts\n",
		},
		{
			name:    "error goes to error writer",
			log:     func(l *logging.Logger) { l.Error("boom") },
			wantErr: "[ERROR] boom\n",
		},
		{
			name: "debug suppressed when not verbose",
			log:  func(l *logging.Logger) { l.Debug("hidden") },
		},
		{
			name:    "debug printed when verbose",
			log:     func(l *logging.Logger) { l.Debug("shown") },
			wantOut: "[DEBUG] shown\n",
			verbose: true,
		},
		{
			name:    "percent passed as an argument",
			log:     func(l *logging.Logger) { l.Info("%s done", "100%") },
			wantOut: "[INFO] 100% done\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			l := logging.New(&out, &errOut, tt.verbose)

			tt.log(l)

			assert.Equal(t, tt.wantOut, out.String())
			assert.Equal(t, tt.wantErr, errOut.String())
		})
	}
}

func TestLogger_Phase(t *testing.T) {
	var out bytes.Buffer
	l := logging.New(&out, nil, false)

	l.Phase("Reconciling %d repositories", 3)

	assert.Contains(t, out.String(), "[PHASE] Reconciling 3 repositories")
	assert.Equal(t, 3, bytes.Count(out.Bytes(), []byte("\n")))
}

func TestLogger_NilIsSilent(t *testing.T) {
	var l *logging.Logger

	assert.NotPanics(t, func() {
		l.Info("x")
		l.Success("x")
		l.Warn("x")
		l.Error("x")
		l.Debug("x")
		l.Phase("x")
	})
	assert.False(t, l.Verbose())
}
