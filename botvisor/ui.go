// Copyright 2026 The Botvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build !plan9

package main

import (
	"github.com/botvisor/botvisor/botvisor/ui"
	"github.com/botvisor/botvisor/rest"
)

func doUI(client *rest.Client, url string) error {
	return ui.NewApp(client, url).Run()
}

/*
   Our screen has the following appearance:

    http://127.0.0.1:3000           Bots                             Botvisor
      3 Bots    1 Faulted    1 Running    1 Stopped    0 Deploying
   ____________________________________________________________________________
   1f0c2a9e echo-bot             node    running        1:02:13   41233 23411   0
   8c1b77d2 weather-3f9a21       python  error        0h 4m 10s       - 18822   5
   a02e4c11 idle                 node    stopped            N/A       - 40917   0
   ____________________________________________________________________________
   [Q] Quit [H] Help [I] Info [L] Log [S] Stop [R] Restart [U] Update
*/
