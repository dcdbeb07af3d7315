// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// umvh - UMVH sensor hub tool
//
// A CLI tool for discovering, polling, calibrating and flashing UMVH
// sensor hubs over a Modbus-RTU style serial link.

package main

import (
	"os"

	"github.com/Thermoquad/umvh/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
