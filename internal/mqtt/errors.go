// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package mqtt

import "errors"

var (
	ErrDisabled         = errors.New("mqtt: disabled")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrInvalidTopic     = errors.New("mqtt: invalid topic")
	ErrQueueFull        = errors.New("mqtt: publish queue full")
)
