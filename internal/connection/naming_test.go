package connection

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var hostnamePattern = regexp.MustCompile(`^[a-z]+-[a-z]+-[0-9a-f]{4}$`)

func TestGenerateHostname_MatchesExpectedShape(t *testing.T) {
	for i := 0; i < 20; i++ {
		assert.Regexp(t, hostnamePattern, generateHostname())
	}
}
