//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
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
//
// +build !no_libudev

package usb

import (
	"github.com/golang/glog"
	"github.com/google/gousb"
	"github.com/juju/errors"
)

// DeviceInfo describes a USB device at the bus level, before any
// interface is claimed.
type DeviceInfo struct {
	VID     uint16
	PID     uint16
	Product string
	Serial  string
}

// List reports USB devices matching VID and PID (0 matches any).
// This sees devices the HID layer cannot open, typically because of a
// udev permission problem on Linux.
func List(vid, pid uint16) ([]DeviceInfo, error) {
	uctx := gousb.NewContext()
	defer uctx.Close()
	devs, err := uctx.OpenDevices(func(dd *gousb.DeviceDesc) bool {
		result := (vid == 0 || uint16(dd.Vendor) == vid) &&
			(pid == 0 || uint16(dd.Product) == pid)
		glog.V(1).Infof("Dev %+v", dd)
		return result
	})
	// OpenDevices may fail overall but still return results. Only fail if
	// no devices were returned.
	if err != nil && len(devs) == 0 {
		return nil, errors.Annotatef(err, "failed to enumerate USB devices")
	}
	var res []DeviceInfo
	for _, dev := range devs {
		di := DeviceInfo{
			VID: uint16(dev.Desc.Vendor),
			PID: uint16(dev.Desc.Product),
		}
		di.Product, _ = dev.Product()
		di.Serial, _ = dev.SerialNumber()
		res = append(res, di)
		dev.Close()
	}
	return res, nil
}
