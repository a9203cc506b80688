/*
Package bgmask removes uniform backgrounds from PNG images.

A pixel is made fully transparent when its RGB color is close to the color of
the image's top-left pixel, or close to black. Closeness is the Euclidean
distance in 8-bit RGB space compared strictly against a tolerance (30 and 50
by default). RGB values are never changed, only alpha.

Walk discovers PNG files under a directory, Mask processes one image, and Run
ties both together into a batch that overwrites each file (or writes to a
separate output tree) and reports per-file results without stopping on
per-file failures.
*/
package bgmask
