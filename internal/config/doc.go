// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

// Package config loads Clocksync configuration with Koanf v2.
//
// Sources are layered, later layers overriding earlier ones:
//
//  1. Built-in defaults (defaultConfig)
//  2. An optional YAML file (CONFIG_PATH, ./config.yaml, /etc/clocksync/config.yaml)
//  3. Environment variables, mapped explicitly by envTransformFunc
//
// Example config.yaml:
//
//	biotime:
//	  url: https://biotime.example.com
//	  username: sync
//	  password: secret
//	  page_size: 100
//	sync:
//	  interval: 1h
//	  strategy: page_cursor
//	  max_records_per_cycle: 5000
//
// The same settings as environment variables:
//
//	BIOTIME_URL=https://biotime.example.com
//	BIOTIME_USERNAME=sync
//	BIOTIME_PASSWORD=secret
//	SYNC_STRATEGY=page_cursor
//
// Load validates the result; an invalid configuration never reaches the
// sync engine.
package config
