// Copyright (c) 2017 OysterPack, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package msgstore

import (
	"errors"
	"fmt"
)

var (
	ErrMessageNil       = errors.New("Message is nil")
	ErrDestinationBlank = errors.New("Destination must not be blank")
	ErrMessageNotFound  = errors.New("Message not found")
	ErrNotReserved      = errors.New("Message is not reserved")
	ErrStoreClosed      = errors.New("Store is closed")
	ErrFilePathIsBlank  = errors.New("Path must not be blank")
)

func errBucketDoesNotExist(name string) error {
	return fmt.Errorf("Bucket does not exist : %s", name)
}

func errDatabaseFilePathIsDir(filePath string) error {
	return fmt.Errorf("The database file path must point to a file, not a directory : %s", filePath)
}
