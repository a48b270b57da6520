// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// Topics builds the topic tree under a prefix:
//
//	<prefix>/outlets/<mac>/state   retained outlet JSON
//	<prefix>/outlets/<mac>/set     ON or OFF
//	<prefix>/gateway/status        online/offline, retained
type Topics struct {
	Prefix string
}

// OutletState is the retained state topic of one outlet
func (t Topics) OutletState(mac int) string {
	return fmt.Sprintf("%s/outlets/%d/state", t.Prefix, mac)
}

// OutletSet is the command topic of one outlet
func (t Topics) OutletSet(mac int) string {
	return fmt.Sprintf("%s/outlets/%d/set", t.Prefix, mac)
}

// OutletSetFilter matches the command topic of every outlet
func (t Topics) OutletSetFilter() string {
	return t.Prefix + "/outlets/+/set"
}

// Status is the bridge availability topic
func (t Topics) Status() string {
	return t.Prefix + "/gateway/status"
}

// ParseOutletSet extracts the MAC address from a command topic
func (t Topics) ParseOutletSet(topic string) (int, error) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/outlets/")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	macStr, ok := strings.CutSuffix(rest, "/set")
	if !ok || macStr == "" || strings.Contains(macStr, "/") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	mac, err := strconv.Atoi(macStr)
	if err != nil || mac < 0 {
		return 0, fmt.Errorf("%w: mac %q", ErrInvalidTopic, macStr)
	}
	return mac, nil
}
