package rate

func refreshKey(userID, deviceID string) string {
	return "tgr:" + userID + ":" + deviceID
}

func loginKey(identifier string) string {
	return "tgl:" + identifier
}
