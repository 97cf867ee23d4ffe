//go:build windows

package keyring

import gokeyring "github.com/zalando/go-keyring"

func (o *osKeyring) Get(service, account string) (string, error) {
	val, err := gokeyring.Get(service, account)
	if err != nil {
		return "", err
	}
	return stripNullBytes(val), nil
}

func (o *osKeyring) Set(service, account, value string) error {
	return gokeyring.Set(service, account, value)
}

func (o *osKeyring) Delete(service, account string) error {
	return gokeyring.Delete(service, account)
}
