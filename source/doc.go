// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package source locates the raw bytes of registered resources.
//
// A resource's storage location is either an object URL
// (https://{bucket}.s3.{region}.amazonaws.com/{key} or s3://{bucket}/{key})
// or a local file path. The Locator fetches the bytes and classifies them by
// signature before anything tries to parse them. The Uploader pushes a local
// directory into a company's bucket prefix and registers each file as a
// resource.
package source
