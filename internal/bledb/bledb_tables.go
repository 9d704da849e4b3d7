package bledb

// Standard GATT service names keyed by the 32-bit short form.
var serviceTable = []entry{
	{"00001800", "Generic Access"},
	{"00001801", "Generic Attribute"},
	{"00001802", "Immediate Alert"},
	{"00001803", "Link Loss"},
	{"00001804", "Tx Power"},
	{"00001805", "Current Time"},
	{"00001806", "Reference Time Update"},
	{"00001807", "Next DST Change"},
	{"00001808", "Glucose"},
	{"00001809", "Health Thermometer"},
	{"0000180A", "Device Information"},
	{"0000180D", "Heart Rate"},
	{"0000180E", "Phone Alert Status"},
	{"0000180F", "Battery Service"},
	{"00001810", "Blood Pressure"},
	{"00001811", "Alert Notification"},
	{"00001812", "Human Interface Device"},
	{"00001813", "Scan Parameters"},
	{"00001814", "Running Speed and Cadence"},
	{"00001815", "Automation IO"},
	{"00001816", "Cycling Speed and Cadence"},
	{"00001818", "Cycling Power"},
	{"00001819", "Location and Navigation"},
	{"0000181A", "Environmental Sensing"},
	{"0000181B", "Body Composition"},
	{"0000181C", "User Data"},
	{"0000181D", "Weight Scale"},
	{"0000181E", "Bond Management"},
	{"0000181F", "Continuous Glucose Monitoring"},
	{"00001820", "Internet Protocol Support"},
	{"00001821", "Indoor Positioning"},
	{"00001822", "Pulse Oximeter"},
	{"00001823", "HTTP Proxy"},
	{"00001824", "Transport Discovery"},
	{"00001825", "Object Transfer"},
	{"00001826", "Fitness Machine"},
	{"00001827", "Mesh Provisioning"},
	{"00001828", "Mesh Proxy"},
	{"00001829", "Reconnection Configuration"},
}

// Standard GATT characteristic names keyed by the 32-bit short form.
var characteristicTable = []entry{
	{"00002a00", "Device Name"},
	{"00002a01", "Appearance"},
	{"00002a02", "Peripheral Privacy Flag"},
	{"00002a03", "Reconnection Address"},
	{"00002a04", "Peripheral Preferred Connection Parameters"},
	{"00002a05", "Service Changed"},
	{"00002a06", "Alert Level"},
	{"00002a07", "Tx Power Level"},
	{"00002a08", "Date Time"},
	{"00002a09", "Day of Week"},
	{"00002a0a", "Day Date Time"},
	{"00002a0b", "Exact Time 100"},
	{"00002a0c", "Exact Time 256"},
	{"00002a0d", "DST Offset"},
	{"00002a0e", "Time Zone"},
	{"00002a0f", "Local Time Information"},
	{"00002a10", "Secondary Time Zone"},
	{"00002a11", "Time with DST"},
	{"00002a12", "Time Accuracy"},
	{"00002a13", "Time Source"},
	{"00002a14", "Reference Time Information"},
	{"00002a15", "Time Broadcast"},
	{"00002a16", "Time Update Control Point"},
	{"00002a17", "Time Update State"},
	{"00002a18", "Glucose Measurement"},
	{"00002a19", "Battery Level"},
	{"00002a1a", "Battery Power State"},
	{"00002a1b", "Battery Level State"},
	{"00002a1c", "Temperature Measurement"},
	{"00002a1d", "Temperature Type"},
	{"00002a1e", "Intermediate Temperature"},
	{"00002a1f", "Temperature Celsius"},
	{"00002a20", "Temperature Fahrenheit"},
	{"00002a21", "Measurement Interval"},
	{"00002a22", "Boot Keyboard Input Report"},
	{"00002a23", "System ID"},
	{"00002a24", "Model Number String"},
	{"00002a25", "Serial Number String"},
	{"00002a26", "Firmware Revision String"},
	{"00002a27", "Hardware Revision String"},
	{"00002a28", "Software Revision String"},
	{"00002a29", "Manufacturer Name String"},
	{"00002a2a", "IEEE 11073-20601 Regulatory Certification Data List"},
	{"00002a2b", "Current Time"},
	{"00002a2c", "Magnetic Declination"},
	{"00002a2f", "Position 2D"},
	{"00002a30", "Position 3D"},
	{"00002a31", "Scan Refresh"},
	{"00002a32", "Boot Keyboard Output Report"},
	{"00002a33", "Boot Mouse Input Report"},
	{"00002a34", "Glucose Measurement Context"},
	{"00002a35", "Blood Pressure Measurement"},
	{"00002a36", "Intermediate Cuff Pressure"},
	{"00002a37", "Heart Rate Measurement"},
	{"00002a38", "Body Sensor Location"},
	{"00002a39", "Heart Rate Control Point"},
	{"00002a3a", "Removable"},
	{"00002a3b", "Service Required"},
	{"00002a3c", "Scientific Temperature Celsius"},
	{"00002a3d", "String"},
	{"00002a3e", "Network Availability"},
	{"00002a3f", "Alert Status"},
	{"00002a40", "Ringer Control point"},
	{"00002a41", "Ringer Setting"},
	{"00002a42", "Alert Category ID Bit Mask"},
	{"00002a43", "Alert Category ID"},
	{"00002a44", "Alert Notification Control Point"},
	{"00002a45", "Unread Alert Status"},
	{"00002a46", "New Alert"},
	{"00002a47", "Supported New Alert Category"},
	{"00002a48", "Supported Unread Alert Category"},
	{"00002a49", "Blood Pressure Feature"},
	{"00002a4a", "HID Information"},
	{"00002a4b", "Report Map"},
	{"00002a4c", "HID Control Point"},
	{"00002a4d", "Report"},
	{"00002a4e", "Protocol Mode"},
	{"00002a4f", "Scan Interval Window"},
	{"00002a50", "PnP ID"},
	{"00002a51", "Glucose Feature"},
	{"00002a52", "Record Access Control Point"},
	{"00002a53", "RSC Measurement"},
	{"00002a54", "RSC Feature"},
	{"00002a55", "SC Control Point"},
	{"00002a56", "Digital"},
	{"00002a57", "Digital Output"},
	{"00002a58", "Analog"},
	{"00002a59", "Analog Output"},
	{"00002a5a", "Aggregate"},
	{"00002a5b", "CSC Measurement"},
	{"00002a5c", "CSC Feature"},
	{"00002a5d", "Sensor Location"},
	{"00002a5e", "PLX Spot-Check Measurement"},
	{"00002a5f", "PLX Continuous Measurement Characteristic"},
	{"00002a60", "PLX Features"},
	{"00002a62", "Pulse Oximetry Control Point"},
	{"00002a63", "Cycling Power Measurement"},
	{"00002a64", "Cycling Power Vector"},
	{"00002a65", "Cycling Power Feature"},
	{"00002a66", "Cycling Power Control Point"},
	{"00002a67", "Location and Speed Characteristic"},
	{"00002a68", "Navigation"},
	{"00002a69", "Position Quality"},
	{"00002a6a", "LN Feature"},
	{"00002a6b", "LN Control Point"},
	{"00002a6c", "Elevation"},
	{"00002a6d", "Pressure"},
	{"00002a6e", "Temperature"},
	{"00002a6f", "Humidity"},
	{"00002a70", "True Wind Speed"},
	{"00002a71", "True Wind Direction"},
	{"00002a72", "Apparent Wind Speed"},
	{"00002a73", "Apparent Wind Direction"},
	{"00002a74", "Gust Factor"},
	{"00002a75", "Pollen Concentration"},
	{"00002a76", "UV Index"},
	{"00002a77", "Irradiance"},
	{"00002a78", "Rainfall"},
	{"00002a79", "Wind Chill"},
	{"00002a7a", "Heat Index"},
	{"00002a7b", "Dew Point"},
	{"00002a7d", "Descriptor Value Changed"},
	{"00002a7e", "Aerobic Heart Rate Lower Limit"},
	{"00002a7f", "Aerobic Threshold"},
	{"00002a80", "Age"},
	{"00002a81", "Anaerobic Heart Rate Lower Limit"},
	{"00002a82", "Anaerobic Heart Rate Upper Limit"},
	{"00002a83", "Anaerobic Threshold"},
	{"00002a84", "Aerobic Heart Rate Upper Limit"},
	{"00002a85", "Date of Birth"},
	{"00002a86", "Date of Threshold Assessment"},
	{"00002a87", "Email Address"},
	{"00002a88", "Fat Burn Heart Rate Lower Limit"},
	{"00002a89", "Fat Burn Heart Rate Upper Limit"},
	{"00002a8a", "First Name"},
	{"00002a8b", "Five Zone Heart Rate Limits"},
	{"00002a8c", "Gender"},
	{"00002a8d", "Heart Rate Max"},
	{"00002a8e", "Height"},
	{"00002a8f", "Hip Circumference"},
	{"00002a90", "Last Name"},
	{"00002a91", "Maximum Recommended Heart Rate"},
	{"00002a92", "Resting Heart Rate"},
	{"00002a93", "Sport Type for Aerobic and Anaerobic Thresholds"},
	{"00002a94", "Three Zone Heart Rate Limits"},
	{"00002a95", "Two Zone Heart Rate Limit"},
	{"00002a96", "VO2 Max"},
	{"00002a97", "Waist Circumference"},
	{"00002a98", "Weight"},
	{"00002a99", "Database Change Increment"},
	{"00002a9a", "User Index"},
	{"00002a9b", "Body Composition Feature"},
	{"00002a9c", "Body Composition Measurement"},
	{"00002a9d", "Weight Measurement"},
	{"00002a9e", "Weight Scale Feature"},
	{"00002a9f", "User Control Point"},
	{"00002aa0", "Magnetic Flux Density - 2D"},
	{"00002aa1", "Magnetic Flux Density - 3D"},
	{"00002aa2", "Language"},
	{"00002aa3", "Barometric Pressure Trend"},
	{"00002aa4", "Bond Management Control Point"},
	{"00002aa5", "Bond Management Features"},
	{"00002aa6", "Central Address Resolution"},
	{"00002aa7", "CGM Measurement"},
	{"00002aa8", "CGM Feature"},
	{"00002aa9", "CGM Status"},
	{"00002aaa", "CGM Session Start Time"},
	{"00002aab", "CGM Session Run Time"},
	{"00002aac", "CGM Specific Ops Control Point"},
	{"00002aad", "Indoor Positioning Configuration"},
	{"00002aae", "Latitude"},
	{"00002aaf", "Longitude"},
	{"00002ab0", "Local North Coordinate"},
	{"00002ab1", "Local East Coordinate"},
	{"00002ab2", "Floor Number"},
	{"00002ab3", "Altitude"},
	{"00002ab4", "Uncertainty"},
	{"00002ab5", "Location Name"},
	{"00002ab6", "URI"},
	{"00002ab7", "HTTP Headers"},
	{"00002ab8", "HTTP Status Code"},
	{"00002ab9", "HTTP Entity Body"},
	{"00002aba", "HTTP Control Point"},
	{"00002abb", "HTTPS Security"},
	{"00002abc", "TDS Control Point"},
	{"00002abd", "OTS Feature"},
	{"00002abe", "Object Name"},
	{"00002abf", "Object Type"},
	{"00002ac0", "Object Size"},
	{"00002ac1", "Object First-Created"},
	{"00002ac2", "Object Last-Modified"},
	{"00002ac3", "Object ID"},
	{"00002ac4", "Object Properties"},
	{"00002ac5", "Object Action Control Point"},
	{"00002ac6", "Object List Control Point"},
	{"00002ac7", "Object List Filter"},
	{"00002ac8", "Object Changed"},
	{"00002ac9", "Resolvable Private Address Only"},
	{"00002acc", "Fitness Machine Feature"},
	{"00002acd", "Treadmill Data"},
	{"00002ace", "Cross Trainer Data"},
	{"00002acf", "Step Climber Data"},
	{"00002ad0", "Stair Climber Data"},
	{"00002ad1", "Rower Data"},
	{"00002ad2", "Indoor Bike Data"},
	{"00002ad3", "Training Status"},
	{"00002ad4", "Supported Speed Range"},
	{"00002ad5", "Supported Inclination Range"},
	{"00002ad6", "Supported Resistance Level Range"},
	{"00002ad7", "Supported Heart Rate Range"},
	{"00002ad8", "Supported Power Range"},
	{"00002ad9", "Fitness Machine Control Point"},
	{"00002ada", "Fitness Machine Status"},
	{"00002aed", "Date UTC"},
	{"00002b1d", "RC Feature"},
	{"00002b1e", "RC Settings"},
	{"00002b1f", "Reconnection Configuration Control Point"},
}
