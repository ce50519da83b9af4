package routing

import "testing"

func TestKeywordClassifier(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        Complexity
	}{
		{"format keyword", "Format the output tables", Simple},
		{"list keyword", "List all open items", Simple},
		{"implement keyword", "Implement the new parser", Medium},
		{"analyze keyword", "Analyze the dataset", Medium},
		{"debug keyword", "Debug the flaky pipeline", Complex},
		{"design keyword", "Design the storage layer", Complex},
		{"research keyword", "Research prior art", Complex},
		{"validate keyword", "Validate the results", Critical},
		{"paper keyword", "Draft the paper abstract", Critical},
		{"publish keyword", "Publish the findings", Critical},
		{"case insensitive", "VALIDATE everything", Critical},
		{"no match defaults to medium", "Do the thing", Medium},
		{"empty defaults to medium", "", Medium},
	}

	c := NewKeywordClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.description); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.description, got, tt.want)
			}
		})
	}
}

// TestKeywordClassifierPriority verifies the highest tier wins when
// keywords from multiple tiers appear in one description.
func TestKeywordClassifierPriority(t *testing.T) {
	c := NewKeywordClassifier()

	tests := []struct {
		description string
		want        Complexity
	}{
		{"implement and validate the feature", Critical},
		{"debug and format the report", Complex},
		{"implement and list the endpoints", Medium},
	}

	for _, tt := range tests {
		if got := c.Classify(tt.description); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.description, got, tt.want)
		}
	}
}
