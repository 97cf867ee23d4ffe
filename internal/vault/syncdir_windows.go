package vault

// syncDir 在 Windows 上是空操作：无法对目录句柄 fsync。
func syncDir(dir string) error {
	return nil
}
