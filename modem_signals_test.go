package serial

import (
	"testing"
)

// TestSignalChanges tests signal change detection
func TestSignalChanges(t *testing.T) {
	tests := []struct {
		name     string
		old      ModemSignals
		next     ModemSignals
		mask     SignalMask
		expected SignalMask
	}{
		{
			name:     "No change",
			old:      ModemSignals{CTS: true, DSR: true},
			next:     ModemSignals{CTS: true, DSR: true},
			mask:     AllSignals,
			expected: 0,
		},
		{
			name:     "CTS changed",
			old:      ModemSignals{},
			next:     ModemSignals{CTS: true},
			mask:     AllSignals,
			expected: SignalCTS,
		},
		{
			name:     "DSR dropped",
			old:      ModemSignals{DSR: true},
			next:     ModemSignals{},
			mask:     AllSignals,
			expected: SignalDSR,
		},
		{
			name:     "RI and DCD changed",
			old:      ModemSignals{RI: true},
			next:     ModemSignals{DCD: true},
			mask:     AllSignals,
			expected: SignalRI | SignalDCD,
		},
		{
			name:     "Change outside mask ignored",
			old:      ModemSignals{},
			next:     ModemSignals{CTS: true, DSR: true},
			mask:     SignalDSR,
			expected: SignalDSR,
		},
		{
			name:     "Outputs only reported when masked in",
			old:      ModemSignals{RTS: false, DTR: true},
			next:     ModemSignals{RTS: true, DTR: false},
			mask:     AllSignals,
			expected: 0,
		},
		{
			name:     "Outputs masked in",
			old:      ModemSignals{RTS: false, DTR: true},
			next:     ModemSignals{RTS: true, DTR: false},
			mask:     SignalRTS | SignalDTR,
			expected: SignalRTS | SignalDTR,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.old.Changed(tt.next, tt.mask)
			if result != tt.expected {
				t.Errorf("Changed() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSignalMaskString(t *testing.T) {
	tests := []struct {
		mask     SignalMask
		expected string
	}{
		{0, "none"},
		{SignalCTS, "CTS"},
		{SignalCTS | SignalDCD, "CTS|DCD"},
		{AllSignals, "CTS|DSR|RI|DCD"},
		{SignalRTS | SignalDTR, "RTS|DTR"},
	}

	for _, tt := range tests {
		if got := tt.mask.String(); got != tt.expected {
			t.Errorf("SignalMask(%d).String() = %q, want %q", int(tt.mask), got, tt.expected)
		}
	}
}
