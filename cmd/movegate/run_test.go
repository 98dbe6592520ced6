package main

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseFlags(t *testing.T) {
	var testCases = []struct {
		description string
		args        []string
		expect      *options
		expectErr   bool
	}{
		{description: "defaults", expect: &options{}},
		{
			description: "headless arbiter",
			args:        []string{"-config", "cfg.yaml", "-arbiter", "approve", "-delay", "2s", "-enable"},
			expect:      &options{configURL: "cfg.yaml", arbiter: arbiterApprove, delay: 2 * time.Second, enable: true},
		},
		{description: "unknown mode", args: []string{"-arbiter", "maybe"}, expectErr: true},
		{description: "enable without arbiter", args: []string{"-enable"}, expectErr: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			actual, err := parseFlags(flag.NewFlagSet("movegate", flag.ContinueOnError), testCase.args)
			if testCase.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, testCase.expect, actual)
		})
	}
}
